package main

import (
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

func main() {
	pulumi.Run(func(ctx *pulumi.Context) error {
		buildConfig, err := LoadBuildConfig(ctx)
		if err != nil {
			return err
		}

		apiConfig, err := LoadProxyAPIConfig(ctx)
		if err != nil {
			return err
		}

		handler, err := NewLambdaHandler(ctx, buildConfig, LambdaHandlerArgs{
			CorsAllowOrigin: apiConfig.CorsAllowOrigin,
		})
		if err != nil {
			return err
		}

		_, err = NewLambdaProxyAPI(ctx, buildConfig, LambdaProxyAPIArgs{
			ApiNameKey:                 apiConfig.ApiNameKey,
			ApiResourceName:            apiConfig.ApiResourceName,
			ProxyFunction:              handler.function,
			ApiCallerRoleArn:           apiConfig.ApiCallerRoleArn,
			MethodType:                 apiConfig.MethodType,
			ApiEndpointReaderAccountID: apiConfig.ApiEndpointReaderAccountID,
			CorsAllowOrigin:            apiConfig.CorsAllowOrigin,
			CloudWatchRole:             apiConfig.CloudWatchRole,
		})
		if err != nil {
			return err
		}

		return nil
	})
}

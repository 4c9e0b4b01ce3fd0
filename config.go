package main

import (
	"fmt"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"
)

// BuildConfig is the environment naming context every resource name is
// derived from.
type BuildConfig struct {
	Environment string
}

// ProxyAPIConfig holds the stack settings for the single proxy API this
// program deploys.
type ProxyAPIConfig struct {
	ApiNameKey                 string
	ApiResourceName            string
	MethodType                 string
	ApiCallerRoleArn           string
	ApiEndpointReaderAccountID string
	CorsAllowOrigin            string
	CloudWatchRole             bool
}

// name prefixes a resource key with the environment, e.g. "prod-orders".
func name(buildConfig BuildConfig, resourceName string) string {
	return buildConfig.Environment + "-" + resourceName
}

func LoadBuildConfig(ctx *pulumi.Context) (BuildConfig, error) {
	cfg := config.New(ctx, "")
	env, err := cfg.Try("environment")
	if err != nil {
		return BuildConfig{}, fmt.Errorf("Error reading environment: %w", err)
	}
	return BuildConfig{Environment: env}, nil
}

func LoadProxyAPIConfig(ctx *pulumi.Context) (ProxyAPIConfig, error) {
	cfg := config.New(ctx, "")
	callerRoleArn, err := cfg.Try("apiCallerRoleArn")
	if err != nil {
		return ProxyAPIConfig{}, fmt.Errorf("Error reading apiCallerRoleArn: %w", err)
	}
	return ProxyAPIConfig{
		ApiNameKey:                 getOr(cfg, "apiNameKey", "proxy"),
		ApiResourceName:            getOr(cfg, "apiResourceName", "items"),
		MethodType:                 getOr(cfg, "methodType", "GET"),
		ApiCallerRoleArn:           callerRoleArn,
		ApiEndpointReaderAccountID: cfg.Get("apiEndpointReaderAccountId"),
		CorsAllowOrigin:            cfg.Get("corsAllowOrigin"),
		CloudWatchRole:             cfg.GetBool("cloudWatchRole"),
	}, nil
}

func getOr(cfg *config.Config, key, def string) string {
	if v := cfg.Get(key); v != "" {
		return v
	}
	return def
}

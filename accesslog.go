package main

// jsonWithStandardFields is the stage access log format: one JSON object per
// request built from $context variables.
const jsonWithStandardFields = `{"requestId":"$context.requestId",` +
	`"ip":"$context.identity.sourceIp",` +
	`"user":"$context.identity.user",` +
	`"caller":"$context.identity.caller",` +
	`"requestTime":"$context.requestTime",` +
	`"httpMethod":"$context.httpMethod",` +
	`"resourcePath":"$context.resourcePath",` +
	`"status":"$context.status",` +
	`"protocol":"$context.protocol",` +
	`"responseLength":"$context.responseLength"}`

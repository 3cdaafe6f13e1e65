// Command visitorfn is the Lambda function behind the site's HTTP API: the
// visitor counter, the renewal endpoints and the combined health check.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/sitewatch/visitorfn/internal/lambdafn"
)

func main() {
	handler, logger, err := lambdafn.Bootstrap(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "visitorfn: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	lambda.Start(handler.Invoke)
}

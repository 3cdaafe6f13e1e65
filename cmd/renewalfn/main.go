// Command renewalfn is the scheduled Lambda function that starts the
// certificate renewal instance.
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
		fmt.Fprintf(os.Stderr, "renewalfn: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	lambda.Start(handler.InvokeScheduled)
}

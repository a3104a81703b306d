package main

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/picklr-io/vpnpilot/internal/app"
)

var application *app.App

func init() {
	var err error
	application, err = app.Load(context.Background(), app.LoadOptions{})
	if err != nil {
		slog.Error("VPN control: cold start failed", "error", err)
		panic(err)
	}
	application.Logger.Info("VPN control: cold start")
}

func main() {
	lambda.Start(application.ControlHandler().Handle)
}

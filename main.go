/*
	Copyright 2025 The eChook Authors
*/

package main

import "github.com/echook/telemetry-manager-go/cmd"

func main() {
	cmd.Execute()
}

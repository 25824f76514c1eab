/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// echo runs the echo sample simulation for the configured seeds.
package main

import (
	"os"

	"github.com/hyperledger-labs/mirsim/pkg/driver"
	"github.com/hyperledger-labs/mirsim/samples/echo"
)

func main() {
	os.Exit(driver.Main(echo.Simulation(), echo.Defaults(), os.Args[1:], os.Stdout))
}

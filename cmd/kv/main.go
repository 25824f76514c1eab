/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// kv runs the kv sample simulation for the configured seeds.
package main

import (
	"os"

	"github.com/hyperledger-labs/mirsim/pkg/driver"
	"github.com/hyperledger-labs/mirsim/samples/kv"
)

func main() {
	os.Exit(driver.Main(kv.Simulation(), kv.Defaults(), os.Args[1:], os.Stdout))
}

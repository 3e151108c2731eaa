package core

import (
	"testing"

	"landbalancer/testutil"
)

func TestCoreDoesNotImportDrivers(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden, "registry drivers depend on core, not the reverse")
}

//go:build tools

package pgz

import (
	_ "github.com/dmarkham/enumer"
)

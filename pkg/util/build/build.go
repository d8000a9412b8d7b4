// Package build exposes the build information injected via -ldflags to the
// prometheus version package. Import it for its side effect.
package build

import (
	"github.com/prometheus/common/version"
)

var (
	Branch    string
	Version   = "main"
	Revision  string
	BuildUser string
	BuildDate string
	GoVersion string
)

func init() {
	version.Branch = Branch
	version.Version = Version
	version.Revision = Revision
	version.BuildUser = BuildUser
	version.BuildDate = BuildDate
	if GoVersion != "" {
		version.GoVersion = GoVersion
	}
}

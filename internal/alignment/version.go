package alignment

import (
	"github.com/Masterminds/semver/v3"
)

// AnalysisVersion identifies the analysis algorithm implemented by this
// package. It is stamped into every summary's metadata so archived summaries
// can be compatibility-gated when read back.
const AnalysisVersion = "2.0.0"

// CompatibleVersion reports whether a summary produced under the given
// analysis version can be interpreted by the current analyzer. Versions are
// compatible when their major components match.
func CompatibleVersion(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		// Tolerate bare major.minor strings
		v, err = semver.NewVersion(version + ".0")
		if err != nil {
			return false
		}
	}

	current, err := semver.NewVersion(AnalysisVersion)
	if err != nil {
		return false
	}

	return v.Major() == current.Major()
}

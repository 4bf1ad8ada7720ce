// Parses flags and runs the buildbpy commands.
//
// Global flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Include source locations in log output.
//	-d, --debug     Enable debug output.
//	-c, --config    Path to buildbpy.toml.
//	    --root      Build root holding the checkout, libraries and outputs.
//
// Commands:
//
//	build     Build (and optionally install or publish) the bpy wheel.
//	check     Report whether upstream has a new tag or main commit.
//	index     Regenerate the package index page from published releases.
//	version   Show version information.
//
// Errors returned from Execute carry a category that the entry point maps to
// the process exit code.
package cli

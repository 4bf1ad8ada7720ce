// Provides the on-disk layout of a build root.
//
// Every directory the pipeline reads or writes lives under a single root
// owned by one pipeline instance. The Blender build scripts expect the
// library and build directories to be siblings of the source checkout, so
// the layout mirrors that:
//
//	<root>/blender            source checkout
//	<root>/lib                native libraries
//	<root>/build_<platform>   build output (name chosen by the platform)
//	<root>/blender-bin        extracted reference binary
//	<root>/downloads          downloaded archives
//	<root>/python_api         generated API documentation
//	<root>/dist               packaged wheels
package paths

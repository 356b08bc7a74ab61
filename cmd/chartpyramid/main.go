// Command chartpyramid converts a catalog of aeronautical chart archives
// into a web map tile pyramid.
package main

func main() {
	Execute()
}

// Command eof downloads Sentinel-1 orbit files.
package main

func main() {
	Execute()
}

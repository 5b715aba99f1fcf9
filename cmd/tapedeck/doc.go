// Command tapedeck is the appliance CLI: catalog queries, playlist
// projection, one-shot refreshes, and the foreground daemon.
package main

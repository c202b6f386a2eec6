// Package main provides the ipa-info CLI, a Bitrise step that reads the
// metadata of an iOS IPA file and exports it with envman.
//
// For the library API, see the ipainfo subpackage:
//
//	import "github.com/futuredapp/bitrise-step-ipa-info/pkg/ipainfo"
//
// # Installation
//
// Install the CLI:
//
//	go install github.com/futuredapp/bitrise-step-ipa-info@latest
package main

// Package ipainfo reads metadata from iOS application archives (IPA files).
//
// It works on any platform and does not need Xcode or other Apple tooling.
//
// # Basic Usage
//
// To inspect an IPA:
//
//	md, err := ipainfo.Inspect(ctx, "MyApp.ipa")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(md.AppInfo.BundleIdentifier, md.IconPath)
//
// # Features
//
//   - Info.plist: bundle identifier, versions, minimum OS and device families
//   - Provisioning profile: team, profile name, dates and export method
//   - App icon: Apple's CgBI encoded PNGs are converted to standard PNGs
//   - Executable: CPU architectures of the main Mach-O binary
package ipainfo

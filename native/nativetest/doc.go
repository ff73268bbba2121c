// Package nativetest provides an in-process implementation of the project
// library ABI for tests.
//
// The fake keeps its heap in a Go byte slice and never reuses an address,
// so every double free, free of an unknown address and use of a released
// project is recorded as a violation instead of corrupting state:
//
//	lib := nativetest.New(
//		nativetest.WithProject("app.gpr", &nativetest.Project{
//			Name:        "app",
//			Diagnostics: []string{"unused variable X"},
//			Sources:     []string{"main.adb"},
//		}),
//	)
//	... drive the bridge ...
//	if v := lib.Violations(); len(v) > 0 {
//		t.Fatalf("lifecycle violations: %v", v)
//	}
//	if n := lib.LiveAllocations(); n != 0 {
//		t.Fatalf("%d native blocks leaked", n)
//	}
//
// Every string array carries one extra item past its count, so a reader that
// ignores the count field returns a visibly wrong sequence.
package nativetest

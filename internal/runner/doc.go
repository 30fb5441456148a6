// Package runner executes external processes for stackctl.
//
// CommandRunner is the single capability every component uses to reach the
// container runtime (docker, docker compose) or any other host tool. It
// never reports a non-zero exit as an error; callers decide the policy.
// The only error it returns is *model.LaunchFailure, when the process could
// not be started at all.
//
// Output is streamed to the caller's writers in real time and captured at
// the same time, so a failing build still shows its log and the caller can
// inspect it afterwards.
//
// Process creation goes through a Launcher, which has one implementation per
// target platform (launcher_unix.go, launcher_windows.go). Tests substitute
// runnertest.Fake instead of starting real processes.
package runner

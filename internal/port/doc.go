// Package port checks whether the host ports a compose project publishes
// are free before its containers are started.
//
// A port held by an unrelated process makes `docker compose up` fail with
// a bind error only after images are built and containers created. The
// Scanner asks the OS directly (net.Listen / net.ListenPacket) so the
// conflict can be reported up front.
package port

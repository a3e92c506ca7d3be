package printer

import "context"

// Client is the device-control surface implemented by the MQTT session.
// Connect blocks until the device has reported status at least once;
// PublishWithReply serializes one outstanding reply-awaiting call at a time.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()
	Serial() string
	SetStatusHandler(h StatusHandler)

	Publish(ctx context.Context, req Request) error
	PublishWithReply(ctx context.Context, req Request) (Reply, error)

	RawGcode(ctx context.Context, gcode string) (Reply, error)
	PrintGcodeFile(ctx context.Context, url string) (Reply, error)
	PrintProject(ctx context.Context, url string, amsMapping []int, opts ...ProjectOption) (Reply, error)
	Stop(ctx context.Context) (Reply, error)
	// StopNoReply publishes a stop without awaiting acknowledgement, for
	// emergency paths that cannot afford to block.
	StopNoReply(ctx context.Context) error
	Pause(ctx context.Context) (Reply, error)
	Resume(ctx context.Context) (Reply, error)
}

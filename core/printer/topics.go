package printer

// RequestTopic is the topic commands are published to for the given device.
func RequestTopic(serial string) string {
	return "device/" + serial + "/request"
}

// ReportTopic carries both status broadcasts and command replies.
func ReportTopic(serial string) string {
	return "device/" + serial + "/report"
}

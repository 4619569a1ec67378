package probe

// Options control a probe run against a native store bridge.
type Options struct {
	Transport string   `short:"t" long:"transport" description:"bridge transport" choice:"stdio" choice:"sse" choice:"streamable" default:"stdio"`
	Command   string   `short:"c" long:"command" description:"bridge command for stdio transport"`
	URL       string   `short:"u" long:"url" description:"bridge url for sse or streamable transport"`
	Products  []string `short:"p" long:"product" description:"product identifier to query, repeatable" required:"true"`
	Verbose   bool     `short:"v" long:"verbose" description:"enable debug logging"`
}

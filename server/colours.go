package server

// ANSI escapes for the route table printed at startup.
const (
	colourGreen   = "\033[32m"
	colourBlue    = "\033[34m"
	colourCyan    = "\033[36m"
	colourYellow  = "\033[33m"
	colourMagenta = "\033[35m"
	colourGray    = "\033[90m"
	colourReset   = "\033[0m"
)

var methodColours = map[string]string{
	"GET":     colourGreen,
	"POST":    colourBlue,
	"OPTIONS": colourCyan,
	"DELETE":  colourYellow,
	"PATCH":   colourMagenta,
}

func methodColour(method string) string {
	if c, ok := methodColours[method]; ok {
		return c
	}
	return colourGray
}

package parser

import "regexp"

// Location is a best-effort source position mined out of a log message.
type Location struct {
	Controller string
	Line       string
	File       string
}

// locationPatterns is the ordered precedence list for ExtractLocation. The
// first matching pattern wins; later ones are not consulted.
var locationPatterns = []*regexp.Regexp{
	// Laravel stack frame: at /var/www/.../UserController.php:87
	regexp.MustCompile(`at (?P<path>/\S+/)(?P<controller>\w+Controller)\.php:(?P<line>\d+)`),

	// Laravel: UserController::method() ... at /path/file.php:123
	regexp.MustCompile(`(?P<controller>\w+Controller)::\w+\(.*?\).*?at (?P<file>/\S+):(?P<line>\d+)`),

	// Python traceback: File "app.py", line 42, in handler
	regexp.MustCompile(`File "(?P<file>[^"]+)", line (?P<line>\d+)(?:, in (?P<controller>\w+))?`),

	// Node.js: at handler (/srv/app.js:10:5)
	regexp.MustCompile(`at (?P<controller>\w+) \((?P<file>[^():]+):(?P<line>\d+)(?::\d+)?\)`),

	// Node.js anonymous frame: at /srv/app.js:10:5
	regexp.MustCompile(`at (?P<file>[^():\s]+):(?P<line>\d+)(?::\d+)?`),
}

// ExtractLocation mines a free-text message for a controller/class name, file
// path, and line number. An empty Location is a normal outcome for messages
// that carry no recognizable frame.
func ExtractLocation(message string) Location {
	for _, re := range locationPatterns {
		m := re.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		g := groups(re, m)

		loc := Location{
			Controller: g["controller"],
			Line:       g["line"],
			File:       g["file"],
		}
		// The first Laravel pattern splits the path from the class name;
		// the frame's file is path + class + ".php".
		if path := g["path"]; path != "" && loc.Controller != "" {
			loc.File = path + loc.Controller + ".php"
		}
		return loc
	}
	return Location{}
}

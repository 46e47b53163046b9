package mpvipc

// Command is a single mpv JSON IPC request.
//
// Wire form: {"command":["loadfile","/path/intro.mp4","replace"]}
type Command struct {
	Args []any `json:"command"`
}

// Name returns the command verb, for logging.
func (c Command) Name() string {
	if len(c.Args) == 0 {
		return ""
	}
	name, _ := c.Args[0].(string)
	return name
}

// LoadReplace is the loadfile mode that stops the current file and starts
// the new one.
const LoadReplace = "replace"

// PlaylistClear empties the playlist, except the currently playing entry.
func PlaylistClear() Command {
	return Command{Args: []any{"playlist-clear"}}
}

// LoadFile loads path using mode. With LoadReplace the video output is not
// torn down between files.
func LoadFile(path, mode string) Command {
	return Command{Args: []any{"loadfile", path, mode}}
}

// SetLoopFile sets the loop-file property to "inf" or "no".
func SetLoopFile(loop bool) Command {
	value := "no"
	if loop {
		value = "inf"
	}
	return Command{Args: []any{"set_property", "loop-file", value}}
}

// Quit asks mpv to exit.
func Quit() Command {
	return Command{Args: []any{"quit"}}
}

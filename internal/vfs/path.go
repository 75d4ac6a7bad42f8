package vfs

import "strings"

// SplitPath strips leading slashes and splits at the first remaining one.
// more reports whether a remainder exists; it may be empty, as in "zero/".
func SplitPath(path string) (name, rest string, more bool) {
	trimmed := strings.TrimLeft(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i], trimmed[i+1:], true
	}
	return trimmed, "", false
}

// Canonicalize collapses slashes and resolves "." and ".." textually.
// Absolute paths keep their leading slash and never climb above "/";
// relative paths never climb above their start.
func Canonicalize(path string) string {
	absolute := strings.HasPrefix(path, "/")
	buf := make([]byte, 0, len(path))

	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			for len(buf) > 0 {
				if len(buf) == 1 && buf[0] == '/' {
					break
				}
				c := buf[len(buf)-1]
				buf = buf[:len(buf)-1]
				if c == '/' {
					break
				}
			}
		default:
			if len(buf) == 0 {
				if absolute {
					buf = append(buf, '/')
				}
			} else if buf[len(buf)-1] != '/' {
				buf = append(buf, '/')
			}
			buf = append(buf, part...)
		}
	}

	if absolute && len(buf) == 0 {
		return "/"
	}
	return string(buf)
}

// Join appends name to an absolute directory path.
func Join(dir, name string) string {
	return Canonicalize(dir + "/" + name)
}

// SplitLast returns the parent directory and the final component of a
// canonical absolute path. For "/" both parts are "/" and "".
func SplitLast(path string) (dir, name string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	if i == 0 {
		return "/", path[1:]
	}
	return path[:i], path[i+1:]
}

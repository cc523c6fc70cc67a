package result

import (
	"fmt"
	"io"
)

// PrintReport writes broken link details and a summary to w.
func PrintReport(w io.Writer, rep *Report) {
	writef := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	broken := rep.Broken()
	if len(broken) == 0 {
		writef("No broken links found!\n")
	} else {
		writef("Broken Links:\n")
		for i, link := range broken {
			writef("  URL: %s\n", link.URL)
			writef("  Type: %s\n", link.ErrorType)
			if link.HasStatus() {
				writef("  Status: %d\n", link.StatusCode)
			}
			if link.Detail != "" {
				writef("  Detail: %s\n", link.Detail)
			}
			for _, src := range link.Sources {
				writef("  Found on: %s\n", src)
			}
			if i < len(broken)-1 {
				writef("\n")
			}
		}
	}
	writef("Checked %d links across %d posts, found %d broken links\n",
		rep.Stats.LinksChecked, rep.Stats.PostsFound, rep.Stats.BrokenCount)
}

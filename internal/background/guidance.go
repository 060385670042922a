package background

import "fmt"

// navigationHelp is shown when the activity page could not be reached
func navigationHelp(url string) string {
	return fmt.Sprintf("Open %s in the browser (Profile, then Activity, then Posts) and start the sync again from that tab.", url)
}

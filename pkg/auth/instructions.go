package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowTokenGuide prints how to obtain an app-only bearer token
func ShowTokenGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "BEARER TOKEN SETUP")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "likesync reads liked posts through the v2 API with an app-only bearer token.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  1. Sign in at https://developer.twitter.com and open the developer portal")
	fmt.Fprintln(w, "  2. Create a project and an app (or pick an existing one)")
	fmt.Fprintln(w, "  3. Under 'Keys and tokens', generate the Bearer Token")
	fmt.Fprintln(w, "  4. Paste it at the prompt below")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Alternatives:")
	fmt.Fprintf(w, "  - export %s=<token>\n", TokenEnvVars[0])
	fmt.Fprintf(w, "  - a %s in the working directory with a \"bearer_token\" key\n", CredsFileName)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The token grants read access on behalf of your app. Do not share it.")
	fmt.Fprintln(w, rule)
}

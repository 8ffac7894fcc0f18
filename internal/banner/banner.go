package banner

import (
	"fmt"
	"io"
)

const Version = "0.3.0"

func Print(w io.Writer) {
	banner := `
    ___    __          __  _____
   /   |  / /__  _____/ /_/ ___/_________  ____  ___
  / /| | / / _ \/ ___/ __/\__ \/ ___/ __ \/ __ \/ _ \
 / ___ |/ /  __/ /  / /_ ___/ / /__/ /_/ / /_/ /  __/
/_/  |_/_/\___/_/   \__//____/\___/\____/ .___/\___/
                                       /_/  v%s - Alerts Explorer
    `
	fmt.Fprintf(w, banner, Version)
	fmt.Fprintln(w, "\n------------------------------------------------")
}

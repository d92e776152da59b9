package boot

import (
	"io"

	"github.com/scietool/jump/core/config"
	"github.com/scietool/jump/core/scie"
)

// Inspect emits the lift manifest as pretty-printed JSON.
func Inspect(writer io.Writer, loaded *scie.Scie) error {
	return loaded.Config.Serialize(writer, config.Fmt{Pretty: true, TrailingNewline: true})
}

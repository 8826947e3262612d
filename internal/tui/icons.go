package tui

// Icons. Color is the primary signal; the shape reinforces it.
const (
	IconCheck   = "✔" // ✔ heavy check mark (allow, success)
	IconCross   = "✖" // ✖ heavy multiplication X (error)
	IconWarning = "⚠" // ⚠ warning sign (ask)
	IconInfo    = "ℹ" // ℹ information source
	IconCircle  = "○" // ○ hollow circle (no opinion)
	IconBlock   = "⊘" // ⊘ circled division slash (deny)
	IconBolt    = "⚡" // ⚡ high voltage (hit counter)
	IconSquare  = "▪" // ▪ small square (severity badge)
)

// Package viz renders runs in the terminal.
//
// Finished runs are drawn as line charts, one per recorded column. A live
// view built on Bubble Tea follows a transient run step by step:
//
//	Tab   - Cycle the charted column
//	Space - Freeze or resume the display
//	Q     - Quit
package viz

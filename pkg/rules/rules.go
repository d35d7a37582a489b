// Package rules wraps the chess rules engine behind the two capabilities
// the session layer needs: apply a proposed move and detect terminal
// positions. Everything else about the underlying library stays private.
package rules

import (
	nchess "github.com/corentings/chess/v2"

	"github.com/tecu23/match-server/internal/color"
)

// OutcomeKind names the way a session ended.
type OutcomeKind string

// All outcome kinds. Terminal only ever reports the first three; the
// rest describe endings decided outside the board.
const (
	OutcomeCheckmate   OutcomeKind = "checkmate"
	OutcomeStalemate   OutcomeKind = "stalemate"
	OutcomeDraw        OutcomeKind = "draw"
	OutcomeResignation OutcomeKind = "resignation"
	OutcomeAgreedDraw  OutcomeKind = "agreed-draw"
	OutcomeAbandoned   OutcomeKind = "abandoned"
)

// Outcome describes a finished game. Winner is set only for outcomes
// that have one.
type Outcome struct {
	Kind   OutcomeKind
	Winner color.Color
}

// Game holds one board position and the move history that produced it.
// It is not safe for concurrent use; the owning session serializes access.
type Game struct {
	inner *nchess.Game
}

// NewGame returns a game at the standard starting position.
func NewGame() *Game {
	return &Game{inner: nchess.NewGame()}
}

// ApplyMove tries the move given by its source and destination squares
// and reports whether it was legal. An illegal move leaves the position
// untouched. Pawn moves onto the last rank promote to a queen, matching
// the behavior the clients expect.
func (g *Game) ApplyMove(from, to string) bool {
	uci := from + to
	if err := g.inner.PushNotationMove(uci, nchess.UCINotation{}, nil); err == nil {
		return true
	}

	// Retry as a queen promotion before giving up.
	if err := g.inner.PushNotationMove(uci+"q", nchess.UCINotation{}, nil); err == nil {
		return true
	}

	return false
}

// FEN returns the current position in Forsyth-Edwards notation.
func (g *Game) FEN() string {
	return g.inner.FEN()
}

// Turn returns the color whose move is legal next.
func (g *Game) Turn() color.Color {
	if g.inner.Position().Turn() == nchess.White {
		return color.White
	}
	return color.Black
}

// Terminal reports the outcome of the current position, or nil while the
// game is still playable. Checkmate has priority over stalemate, which
// has priority over the automatic draw rules.
func (g *Game) Terminal() *Outcome {
	switch g.inner.Method() {
	case nchess.Checkmate:
		winner := color.White
		if g.inner.Outcome() == nchess.BlackWon {
			winner = color.Black
		}
		return &Outcome{Kind: OutcomeCheckmate, Winner: winner}
	case nchess.Stalemate:
		return &Outcome{Kind: OutcomeStalemate}
	}

	if g.inner.Outcome() == nchess.Draw {
		return &Outcome{Kind: OutcomeDraw}
	}

	return nil
}

// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package textutil

import (
	"io"
	"unicode"
	"unicode/utf8"
)

// LineWriter is a WriteFlusher that performs greedy word-wrapping, breaking
// lines at whitespace so that no line exceeds the target width in runes.
// Indentation may be configured separately for the first line of a block and
// for lines that result from wrapping; a block ends at Flush.
//
// A negative width disables wrapping; words are still re-flowed to undo any
// incidental whitespace, but lines are only broken at an explicit newline in
// the input.
type LineWriter struct {
	w                io.Writer
	width            int
	decoder          UTF8ChunkDecoder
	cur              byteRuneBuffer
	word             byteRuneBuffer
	indent1, indentN string
	lineOpen         bool
	hasWord          bool
	firstLineOfBlock bool
	err              error
}

var _ WriteFlusher = (*LineWriter)(nil)

// NewUTF8LineWriter returns a LineWriter that wraps UTF-8 text written to it
// and writes the result to w, wrapping at width runes per line.
func NewUTF8LineWriter(w io.Writer, width int) *LineWriter {
	lw := &LineWriter{w: w, width: width, firstLineOfBlock: true}
	lw.cur.enc = UTF8Encoder{}
	lw.word.enc = UTF8Encoder{}
	return lw
}

// Width returns the configured wrapping width.
func (lw *LineWriter) Width() int { return lw.width }

// SetIndents sets the indent used for the first line of the next block to
// indents[0], and the indent used for subsequent (wrapped) lines of that
// block to indents[1]. A single indent applies to both. No args clears both.
func (lw *LineWriter) SetIndents(indents ...string) {
	switch len(indents) {
	case 0:
		lw.indent1, lw.indentN = "", ""
	case 1:
		lw.indent1, lw.indentN = indents[0], indents[0]
	default:
		lw.indent1, lw.indentN = indents[0], indents[1]
	}
}

// Write implements the io.Writer interface method.
func (lw *LineWriter) Write(data []byte) (int, error) {
	if lw.err != nil {
		return 0, lw.err
	}
	n, err := RuneChunkWrite(&lw.decoder, lw.handleRune, data)
	if err != nil {
		lw.err = err
	}
	return n, lw.err
}

// Flush writes out any buffered partial line and resets indentation back to
// the first-line indent for the next block.
func (lw *LineWriter) Flush() error {
	if lw.err != nil {
		return lw.err
	}
	if err := RuneChunkFlush(&lw.decoder, lw.handleRune); err != nil {
		lw.err = err
	}
	lw.flushWord()
	if lw.lineOpen {
		lw.emitLine()
	}
	lw.firstLineOfBlock = true
	return lw.err
}

func (lw *LineWriter) handleRune(r rune) error {
	switch {
	case r == '\n':
		lw.flushWord()
		if lw.lineOpen {
			lw.emitLine()
		} else if lw.err == nil {
			_, lw.err = lw.w.Write([]byte{'\n'})
		}
	case unicode.IsSpace(r):
		lw.flushWord()
	default:
		lw.word.WriteRune(r)
	}
	return lw.err
}

func (lw *LineWriter) openLine() {
	if lw.lineOpen {
		return
	}
	indent := lw.indentN
	if lw.firstLineOfBlock {
		indent = lw.indent1
	}
	lw.cur.Reset()
	lw.cur.WriteString(indent)
	lw.lineOpen = true
	lw.hasWord = false
	lw.firstLineOfBlock = false
}

func (lw *LineWriter) flushWord() {
	if lw.word.RuneLen() == 0 {
		return
	}
	word := string(lw.word.Bytes())
	wordLen := utf8.RuneCountInString(word)
	lw.word.Reset()

	lw.openLine()
	if lw.hasWord && lw.width >= 0 && int(lw.cur.RuneLen())+1+wordLen > lw.width {
		lw.emitLine()
		lw.openLine()
	}
	if lw.hasWord {
		lw.cur.WriteString(" ")
	}
	lw.cur.WriteString(word)
	lw.hasWord = true
}

func (lw *LineWriter) emitLine() {
	if lw.err == nil {
		_, lw.err = lw.w.Write(lw.cur.Bytes())
	}
	if lw.err == nil {
		_, lw.err = lw.w.Write([]byte{'\n'})
	}
	lw.cur.Reset()
	lw.lineOpen = false
	lw.hasWord = false
}

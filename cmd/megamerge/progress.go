package main

import (
	"fmt"
	"io"

	"github.com/gosuri/uiprogress"
)

// barProgress renders merge progress as a terminal bar
type barProgress struct {
	out      io.Writer
	progress *uiprogress.Progress
	bar      *uiprogress.Bar
}

func (p *barProgress) Start(total int) {
	if total == 0 {
		return
	}

	p.progress = uiprogress.New()
	p.progress.Out = p.out
	p.progress.Start()

	p.bar = p.progress.AddBar(total).AppendCompleted().PrependElapsed()
	p.bar.PrependFunc(func(b *uiprogress.Bar) string {
		return fmt.Sprintf("Merging %d/%d: ", b.Current(), b.Total)
	})
}

func (p *barProgress) Incr() {
	if p.bar != nil {
		p.bar.Incr()
	}
}

func (p *barProgress) Stop() {
	if p.progress != nil {
		p.progress.Stop()
	}
}

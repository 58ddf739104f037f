package main

import (
	"io"
	"runtime"
	"strings"
	"text/template"
	"time"

	"github.com/rotisserie/eris"
)

type Report struct {
	RunId    string
	Scenario Scenario

	TotalTime     time.Duration
	Worlds        []WorldResult
	MemStatsStart runtime.MemStats
	MemStatsEnd   runtime.MemStats
}

type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	Samples []time.Duration
}

func (s *Stats) Finalize() {
	if len(s.Samples) == 0 {
		return
	}

	var total time.Duration
	s.Min = s.Samples[0]
	s.Max = s.Samples[0]

	for _, sample := range s.Samples {
		s.Min = min(s.Min, sample)
		s.Max = max(s.Max, sample)
		total += sample
	}

	s.Avg = total / time.Duration(len(s.Samples))
}

func (r *Report) TotalUpdates() int64 {
	var total int64
	for _, world := range r.Worlds {
		total += world.Updates
	}

	return total
}

func (r *Report) Generate(w io.Writer) error {
	const reportTemplate = `
# knot stress report {{.RunId}}

## Scenario
- **Duration:** {{.Scenario.Duration}}
- **Initial Entities:** {{.Scenario.Entities}}
- **Worlds:** {{.Scenario.Worlds}}
- **Churn:** {{.Scenario.Churn}} parents with {{.Scenario.Children}} children each

## Results
- **Total Updates:** {{.TotalUpdates}}
- **Total Time:** {{.TotalTime}}
{{range .Worlds}}
### World {{.Index}}
- **Updates:** {{.Updates}}
- **Frame Time:** avg {{.FrameTime.Avg}}, min {{.FrameTime.Min}}, max {{.FrameTime.Max}}
- **Entities:** {{.Entities}}
- **Archetypes:** {{.Archetypes}}
- **Tables:** {{.Tables}}
{{range .Systems}}  - {{.Name | short}}: {{.Average}} over {{.Runs}} runs
{{end}}{{end}}
## Memory Usage (Raw Bytes)
- Heap Alloc:  {{.MemStatsStart.HeapAlloc}} (start) -> {{.MemStatsEnd.HeapAlloc}} (end) -> delta: {{bsub .MemStatsEnd.HeapAlloc .MemStatsStart.HeapAlloc}}
- Total Alloc: {{.MemStatsStart.TotalAlloc}} (start) -> {{.MemStatsEnd.TotalAlloc}} (end) -> delta: {{bsub .MemStatsEnd.TotalAlloc .MemStatsStart.TotalAlloc}}
- Num GC:      {{.MemStatsStart.NumGC}} (start) -> {{.MemStatsEnd.NumGC}} (end) -> delta: {{usub .MemStatsEnd.NumGC .MemStatsStart.NumGC}}
- GC Pause:    {{.MemStatsEnd.PauseTotalNs | ns}}
`

	fm := template.FuncMap{
		"bsub": func(a, b uint64) int64 {
			return int64(a) - int64(b)
		},
		"usub": func(a, b uint32) uint32 {
			return a - b
		},
		"ns": func(ns uint64) string {
			return time.Duration(ns).String()
		},
		"short": func(name string) string {
			return name[strings.LastIndexByte(name, '.')+1:]
		},
	}

	tmpl, err := template.New("report").Funcs(fm).Parse(reportTemplate)
	if err != nil {
		return err
	}

	if err := tmpl.Execute(w, r); err != nil {
		return eris.Wrap(err, "render report")
	}

	return nil
}

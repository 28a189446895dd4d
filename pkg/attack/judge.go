// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package attack

import (
	"context"
	"fmt"

	"github.com/teradata-labs/crucible/pkg/metrics"
)

// JudgeOptions tune MetricJudge.
type JudgeOptions struct {
	// Target is passed to the metric as the target of every reply.
	Target any
	// Threshold is compared with the metric's grading score (0-100).
	Threshold float64
	// Below treats a score at or under Threshold as success, for metrics
	// such as refusal_rate that fall when an attack gets through.
	Below bool
}

// JudgeOptionsFromParams reads success_threshold, success_below and target
// from module params. The threshold defaults to 100, or 0 when below is set.
func JudgeOptionsFromParams(params map[string]any) JudgeOptions {
	opts := JudgeOptions{
		Target: params["target"],
		Below:  paramBool(params, "success_below", false),
	}
	def := 100.0
	if opts.Below {
		def = 0
	}
	opts.Threshold = paramFloat(params, "success_threshold", def)
	return opts
}

// MetricJudge scores the successful replies of a step with metric id.
// Failed replies are ignored; a step without any successful reply never
// succeeds.
func MetricJudge(engine *metrics.Engine, id string, opts JudgeOptions) Judge {
	return func(ctx context.Context, replies []Reply) (bool, error) {
		var in metrics.Input
		for _, r := range replies {
			if r.Err != nil {
				continue
			}
			in.Prompts = append(in.Prompts, r.PreparedPrompt)
			in.Predicted = append(in.Predicted, r.Response)
			in.Targets = append(in.Targets, opts.Target)
		}
		if len(in.Predicted) == 0 {
			return false, nil
		}
		results, err := engine.Evaluate(ctx, []string{id}, in)
		if err != nil {
			return false, err
		}
		score, ok := metrics.Score(results, []string{id})
		if !ok {
			if msg, has := results[id][metrics.KeyError]; has {
				return false, fmt.Errorf("metric %q failed: %v", id, msg)
			}
			return false, fmt.Errorf("metric %q reports no grading score", id)
		}
		if opts.Below {
			return score <= opts.Threshold, nil
		}
		return score >= opts.Threshold, nil
	}
}

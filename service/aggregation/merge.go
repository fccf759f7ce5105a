package aggregation

import (
	"context"
	"strconv"

	"github.com/viant/spawner/model/errs"
	"github.com/viant/spawner/model/value"
)

func outputOf(result TaskResult) value.Value {
	if result.Output == nil {
		return value.Null()
	}
	return value.String(*result.Output)
}

func (s *Service) merge(ctx context.Context, strategy Strategy, customFunction string, results []TaskResult) value.Value {
	switch strategy {
	case StrategyJSON:
		return mergeJSON(results)
	case StrategyMerge:
		return mergeObjects(results)
	case StrategyFirst:
		if len(results) == 0 {
			return value.Absent
		}
		return outputOf(results[0])
	case StrategyLast:
		if len(results) == 0 {
			return value.Absent
		}
		return outputOf(results[len(results)-1])
	case StrategyCustom:
		if customFunction == "" {
			return mergeConcat(results)
		}
		return s.mergeCustom(ctx, customFunction, results)
	}
	return mergeConcat(results)
}

func mergeConcat(results []TaskResult) value.Value {
	items := make([]value.Value, 0, len(results))
	for _, result := range results {
		items = append(items, outputOf(result))
	}
	return value.Array(items...)
}

func mergeJSON(results []TaskResult) value.Value {
	fields := make(map[string]value.Value, len(results))
	for i, result := range results {
		fields[strconv.Itoa(i)] = outputOf(result)
	}
	return value.Object(fields)
}

// mergeObjects deep-merges outputs that parse as JSON objects, left to right.
func mergeObjects(results []TaskResult) value.Value {
	merged := value.Object(nil)
	for _, result := range results {
		if result.Output == nil {
			continue
		}
		parsed, err := value.Parse([]byte(*result.Output))
		if err != nil || !parsed.IsObject() {
			continue
		}
		merged = value.DeepMerge(merged, parsed)
	}
	return merged
}

func (s *Service) mergeCustom(ctx context.Context, customFunction string, results []TaskResult) value.Value {
	outputs := make([]string, 0, len(results))
	for _, result := range results {
		if result.Output != nil {
			outputs = append(outputs, *result.Output)
			continue
		}
		outputs = append(outputs, "")
	}
	if s.evaluator == nil {
		return mergeFailure(errs.New(errs.MergeFailure, "custom merge function failed: no evaluator configured"), outputs)
	}
	ret, err := s.evaluator.Evaluate(ctx, customFunction, outputs)
	if err != nil {
		return mergeFailure(errs.Wrap(errs.MergeFailure, err, "custom merge function failed"), outputs)
	}
	converted, err := value.FromAny(ret)
	if err != nil {
		return mergeFailure(errs.Wrap(errs.MergeFailure, err, "custom merge function failed"), outputs)
	}
	return converted
}

func mergeFailure(err error, outputs []string) value.Value {
	original := make([]value.Value, 0, len(outputs))
	for _, output := range outputs {
		original = append(original, value.String(output))
	}
	return value.Object(map[string]value.Value{
		"error":           value.String(err.Error()),
		"originalResults": value.Array(original...),
	})
}

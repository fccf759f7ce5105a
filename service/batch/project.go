package batch

// project shapes records per the wait strategy and aggregate mode. Any and
// race return the first record; otherwise the aggregate mode applies.
func project(records []*Record, wait Wait, options *Options) interface{} {
	mode := options.Aggregate
	if wait.Mode == WaitAny || wait.Mode == WaitRace {
		mode = AggregateFirst
	}
	metadata := options.IncludeMetadata
	switch mode {
	case AggregateFirst:
		if len(records) == 0 {
			return nil
		}
		if metadata {
			return records[0]
		}
		return records[0].Result()
	case AggregateLast:
		if len(records) == 0 {
			return nil
		}
		if metadata {
			return records[len(records)-1]
		}
		return records[len(records)-1].Result()
	case AggregateErrors:
		var failed []*Record
		for _, record := range records {
			if record.Status == RecordError {
				failed = append(failed, record)
			}
		}
		if metadata {
			return failed
		}
		messages := make([]string, 0, len(failed))
		for _, record := range failed {
			messages = append(messages, record.Error)
		}
		return messages
	case AggregateSummary:
		summary := &Summary{Total: len(records)}
		for _, record := range records {
			if record.Status == RecordError {
				summary.Errors++
				continue
			}
			summary.Successful++
		}
		if metadata {
			summary.Results = records
			return summary
		}
		slim := make([]*SlimRecord, 0, len(records))
		for _, record := range records {
			slim = append(slim, record.slim())
		}
		summary.Results = slim
		return summary
	}
	if metadata {
		return records
	}
	ret := make([]interface{}, 0, len(records))
	for _, record := range records {
		ret = append(ret, record.Result())
	}
	return ret
}

package client

// The service has answered with several envelope shapes over time. Rather
// than probing the JSON reflectively, the known shapes are expressed as an
// ordered list of extraction strategies; the first one that yields a value
// wins.

type idExtractor func(envelope map[string]any) (int64, bool)

var idExtractors = []idExtractor{
	extractFromCallLogsArray, // data.call_logs[0].id
	extractFromDataID,        // data.id
	extractFromDataCallLogID, // data.call_log_id
	extractFromRootCallLogID, // call_log_id
}

// ExtractCallLogID pulls the server-assigned call-log id out of a response
// envelope. Only strictly positive ids are accepted.
func ExtractCallLogID(envelope map[string]any) (int64, bool) {
	for _, extract := range idExtractors {
		if id, ok := extract(envelope); ok && id > 0 {
			return id, true
		}
	}
	return 0, false
}

func extractFromCallLogsArray(envelope map[string]any) (int64, bool) {
	data, ok := envelope["data"].(map[string]any)
	if !ok {
		return 0, false
	}
	callLogs, ok := data["call_logs"].([]any)
	if !ok || len(callLogs) == 0 {
		return 0, false
	}
	first, ok := callLogs[0].(map[string]any)
	if !ok {
		return 0, false
	}
	return asInt64(first["id"])
}

func extractFromDataID(envelope map[string]any) (int64, bool) {
	data, ok := envelope["data"].(map[string]any)
	if !ok {
		return 0, false
	}
	return asInt64(data["id"])
}

func extractFromDataCallLogID(envelope map[string]any) (int64, bool) {
	data, ok := envelope["data"].(map[string]any)
	if !ok {
		return 0, false
	}
	return asInt64(data["call_log_id"])
}

func extractFromRootCallLogID(envelope map[string]any) (int64, bool) {
	return asInt64(envelope["call_log_id"])
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

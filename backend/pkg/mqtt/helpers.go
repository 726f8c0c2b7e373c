package mqtt

import (
	"errors"
	"fmt"
	"strings"

	"plant-monitor/backend/pkg/apidoc"
)

// validateTopicPattern validates an MQTT topic pattern with {param} placeholders.
// Valid patterns:
// - Parameters must be in {paramName} format (e.g., {user}/feeds/{feed})
// - Parameter names must start with a letter and contain only alphanumeric characters and underscores
// - Multi-level wildcards '#' are NOT supported for explicitness.
func validateTopicPattern(topic string) error {
	if topic == "" {
		return errors.New("topic cannot be empty")
	}

	if strings.HasPrefix(topic, "/") {
		return errors.New("leading slash is not allowed")
	}

	if strings.HasSuffix(topic, "/") {
		return errors.New("trailing slash is not allowed")
	}

	for segment := range strings.SplitSeq(topic, "/") {
		if segment == "" {
			return errors.New("empty segments are not allowed")
		}

		// Check for multi-level wildcard - not allowed
		if strings.Contains(segment, "#") {
			return errors.New("multi-level wildcard '#' is not supported - use explicit parameters {param} instead")
		}

		// Check for single-level wildcard - should use {param} instead
		if strings.Contains(segment, "+") {
			return errors.New("wildcard '+' is not supported - use parameter syntax {param} instead")
		}

		// Check for parameter syntax
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			paramName := segment[1 : len(segment)-1]
			if !apidoc.IsValidParameterName(paramName) {
				return fmt.Errorf("invalid parameter name '%s' - must start with a letter and contain only alphanumeric characters and underscores", paramName)
			}
		} else if strings.Contains(segment, "{") || strings.Contains(segment, "}") {
			return errors.New("invalid parameter syntax - use {paramName} format")
		}
	}

	return nil
}

// convertTopicToMQTT converts a parameterized topic ({user}/feeds/{feed})
// to an MQTT wildcard pattern (+/feeds/+).
func convertTopicToMQTT(topic string) string {
	segments := strings.Split(topic, "/")
	for i, segment := range segments {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			segments[i] = "+"
		}
	}

	return strings.Join(segments, "/")
}

// validateQoS validates a QoS level.
func validateQoS(qos QoS) error {
	if qos != QoSAtMostOnce && qos != QoSAtLeastOnce && qos != QoSExactlyOnce {
		return errors.New("qos must be 0, 1, or 2")
	}

	return nil
}

func generateParameters(topic string, topicParams []TopicParameter) ([]apidoc.MQTTTopicParameter, error) {
	var parameters []apidoc.MQTTTopicParameter
	// Validate path parameters and collect metadata
	params := map[string]struct{}{}
	documentedPathParams := map[string]struct{}{}

	// Extract param names from topic
	for section := range strings.SplitSeq(topic, "/") {
		paramsName, err := apidoc.ExtractParamNames(section)
		if err != nil {
			return nil, fmt.Errorf("invalid topic %s: %w", topic, err)
		}

		for _, paramName := range paramsName {
			params[paramName] = struct{}{}
		}
	}

	// For each documented parameter, validate and collect metadata
	for _, paramSpec := range topicParams {
		if paramSpec.Name == "" {
			return nil, fmt.Errorf("parameter name required for topic %s", topic)
		}

		if paramSpec.Description == "" {
			return nil, fmt.Errorf("parameter Description required for topic %s", topic)
		}

		if paramSpec.Type == nil {
			return nil, fmt.Errorf("parameter Type required for topic %s", topic)
		}

		parameters = append(parameters, apidoc.MQTTTopicParameter{
			Name:        paramSpec.Name,
			TypeValue:   paramSpec.Type,
			Description: paramSpec.Description,
		})

		if _, exists := params[paramSpec.Name]; !exists {
			return nil, fmt.Errorf("documented parameter %s not found in topic", paramSpec.Name)
		}

		documentedPathParams[paramSpec.Name] = struct{}{}
	}

	// Now go over all discovered path parameters and validate that they are documented
	for name := range params {
		if _, exists := documentedPathParams[name]; !exists {
			return nil, fmt.Errorf("topic parameter %s not documented", name)
		}
	}

	return parameters, nil
}

// validateOperationMeta checks the documentation fields shared by publications and subscriptions.
func validateOperationMeta(operationID, summary, description, group string, messageType any, qos QoS) error {
	switch {
	case operationID == "":
		return errors.New("operationID is required")
	case summary == "":
		return errors.New("summary is required")
	case description == "":
		return errors.New("description is required")
	case group == "":
		return errors.New("group is required")
	case messageType == nil:
		return errors.New("messageType is required")
	}

	return validateQoS(qos)
}

func validatePublicationSpec(spec PublicationSpec) error {
	return validateOperationMeta(spec.OperationID, spec.Summary, spec.Description, spec.Group, spec.MessageType, spec.QoS)
}

func validateSubscriptionSpec(spec SubscriptionSpec) error {
	if spec.Handler == nil {
		return errors.New("handler is required")
	}

	return validateOperationMeta(spec.OperationID, spec.Summary, spec.Description, spec.Group, spec.MessageType, spec.QoS)
}

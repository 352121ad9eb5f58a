package ml

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Kind  string          `json:"kind"`
	Model json.RawMessage `json:"model"`
}

// MarshalRegressor serializes a fitted regressor together with its kind.
func MarshalRegressor(r Regressor) ([]byte, error) {
	return marshalKind(r.Kind(), r)
}

// UnmarshalRegressor restores a regressor written by MarshalRegressor.
func UnmarshalRegressor(data []byte) (Regressor, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode model envelope: %w", err)
	}

	var r Regressor
	switch env.Kind {
	case KindLinear:
		r = &LinearRegression{}
	case KindRidge:
		r = &Ridge{}
	case KindTree:
		r = &DecisionTree{}
	case KindForest:
		r = &RandomForest{}
	case KindBoosting:
		r = &GradientBoosting{}
	default:
		return nil, fmt.Errorf("unknown model kind %q", env.Kind)
	}
	if err := json.Unmarshal(env.Model, r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Kind, err)
	}
	return r, nil
}

// MarshalScaler serializes a fitted scaler together with its kind.
func MarshalScaler(s Scaler) ([]byte, error) {
	return marshalKind(s.Kind(), s)
}

// UnmarshalScaler restores a scaler written by MarshalScaler.
func UnmarshalScaler(data []byte) (Scaler, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode scaler envelope: %w", err)
	}

	switch env.Kind {
	case KindIdentityScaler:
		return IdentityScaler{}, nil
	case KindRobustScaler:
		s := &RobustScaler{}
		if err := json.Unmarshal(env.Model, s); err != nil {
			return nil, fmt.Errorf("decode %s scaler: %w", env.Kind, err)
		}
		if len(s.Center) != len(s.Scale) {
			return nil, fmt.Errorf("decode %s scaler: %w", env.Kind, errDimension)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown scaler kind %q", env.Kind)
	}
}

func marshalKind(kind string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: kind, Model: body})
}

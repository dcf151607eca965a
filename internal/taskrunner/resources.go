package taskrunner

import (
	"fmt"
	"strings"
)

// Resources is a Fargate cpu/memory pair in ECS string units.
type Resources struct {
	CPU    string
	Memory string
}

var resourceTiers = map[string]Resources{
	"small":  {CPU: "256", Memory: "512"},
	"medium": {CPU: "512", Memory: "2048"},
	"large":  {CPU: "1024", Memory: "8192"},
	"huge":   {CPU: "2048", Memory: "32768"},
}

// ResourceTiers lists the accepted container sizes, smallest first.
func ResourceTiers() []string {
	return []string{"small", "medium", "large", "huge"}
}

// ResourcesFor maps a container size to its cpu and memory.
func ResourcesFor(tier string) (Resources, error) {
	r, ok := resourceTiers[tier]
	if !ok {
		return Resources{}, fmt.Errorf("%w: %q", ErrUnknownResourceTier, tier)
	}
	return r, nil
}

var regionNames = map[string]string{
	"ap-northeast-1": "tokyo",
	"us-west-2":      "oregon",
	"us-east-1":      "virginia",
}

// RegionName returns the short name used in IAM role names.
func RegionName(region string) (string, error) {
	name, ok := regionNames[region]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRegion, region)
	}
	return name, nil
}

// roleEnv folds numbered demo and qa stacks onto their shared IAM roles.
func roleEnv(env string) string {
	switch {
	case strings.HasPrefix(env, "demo"):
		return "demo"
	case strings.HasPrefix(env, "qa"):
		return "qa"
	default:
		return env
	}
}

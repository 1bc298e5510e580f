package optimizer

import (
	"fmt"
	"time"

	stackwire "github.com/schedulegen/stackwire-go"
	"github.com/schedulegen/stackwire-go/construct"
	"github.com/schedulegen/stackwire-go/resources/apigateway"
	"github.com/schedulegen/stackwire-go/resources/lambda"
	"github.com/schedulegen/stackwire-go/resources/s3"
)

// GatewayTimeout is the longest a gateway waits for its function.
const GatewayTimeout = 29 * time.Second

// deprecatedRuntimes no longer receive security patches.
var deprecatedRuntimes = map[string]bool{
	"java8.al2":  true,
	"python3.9":  true,
	"nodejs18.x": true,
}

var bucketRules = []Rule{
	{
		ID:       "OPT-S3-001",
		Category: CategoryReliability,
		Check: func(_ *construct.Stack, r stackwire.Resource) *Suggestion {
			b := r.(*s3.Bucket)
			if b.Props().Versioned {
				return nil
			}
			return &Suggestion{
				Severity:    "medium",
				Title:       "Enable versioning",
				Description: "Overwritten and deleted objects cannot be recovered from an unversioned bucket.",
				Suggestion:  "Set Versioned: true.",
			}
		},
	},
	{
		ID:       "OPT-S3-002",
		Category: CategoryReliability,
		Check: func(_ *construct.Stack, r stackwire.Resource) *Suggestion {
			b := r.(*s3.Bucket)
			if b.Props().RemovalPolicy != stackwire.RemovalPolicyDestroy {
				return nil
			}
			return &Suggestion{
				Severity:    "high",
				Title:       "Bucket is deleted with the stack",
				Description: "Destroying the stack or renaming the bucket deletes it and every stored version.",
				Suggestion:  "Use RemovalPolicyRetain for buckets holding data that must outlive the stack.",
			}
		},
	},
	{
		ID:       "OPT-S3-003",
		Category: CategoryCost,
		Check: func(_ *construct.Stack, r stackwire.Resource) *Suggestion {
			b := r.(*s3.Bucket)
			if !b.Props().Versioned {
				return nil
			}
			return &Suggestion{
				Severity:    "low",
				Title:       "Noncurrent versions are kept forever",
				Description: "Every overwrite keeps the previous version, and storage grows without bound.",
				Suggestion:  "Expire noncurrent versions after a retention window.",
			}
		},
	},
}

var functionRules = []Rule{
	{
		ID:       "OPT-LAM-001",
		Category: CategoryPerformance,
		Check: func(_ *construct.Stack, r stackwire.Resource) *Suggestion {
			fn := r.(*lambda.Function)
			if fn.Runtime().Family() != lambda.FamilyJava || fn.MemorySize() > 256 {
				return nil
			}
			return &Suggestion{
				Severity:    "medium",
				Title:       "JVM function has little memory",
				Description: fmt.Sprintf("%s runs with %d MB. CPU scales with memory, so JVM cold starts are slow at this size.", fn.Runtime(), fn.MemorySize()),
				Suggestion:  "Raise MemorySize to at least 512.",
			}
		},
	},
	{
		ID:       "OPT-LAM-002",
		Category: CategoryReliability,
		Check: func(stack *construct.Stack, r stackwire.Resource) *Suggestion {
			fn := r.(*lambda.Function)
			if fn.Timeout() <= GatewayTimeout || !behindGateway(stack, fn) {
				return nil
			}
			return &Suggestion{
				Severity:    "medium",
				Title:       "Timeout exceeds the gateway limit",
				Description: fmt.Sprintf("The function may run for %s but the gateway gives up after %s.", fn.Timeout(), GatewayTimeout),
				Suggestion:  "Lower Timeout or move long work off the request path.",
			}
		},
	},
	{
		ID:       "OPT-LAM-003",
		Category: CategorySecurity,
		Check: func(_ *construct.Stack, r stackwire.Resource) *Suggestion {
			fn := r.(*lambda.Function)
			if !deprecatedRuntimes[fn.Runtime().Name()] {
				return nil
			}
			return &Suggestion{
				Severity:    "high",
				Title:       "Runtime is deprecated",
				Description: fmt.Sprintf("%s no longer receives security patches.", fn.Runtime()),
				Suggestion:  "Move to a supported runtime of the same family.",
			}
		},
	},
}

var gatewayRules = []Rule{
	{
		ID:       "OPT-APIGW-001",
		Category: CategorySecurity,
		Check: func(_ *construct.Stack, r stackwire.Resource) *Suggestion {
			api := r.(*apigateway.LambdaRestApi)
			return &Suggestion{
				Severity:    "medium",
				Title:       "Every request reaches the function",
				Description: fmt.Sprintf("%s proxies every path and method to %s without authorization.", api.ID(), api.Handler().ID()),
				Suggestion:  "Check credentials in the function or put an authorizer in front of the gateway.",
			}
		},
	},
}

func behindGateway(stack *construct.Stack, fn *lambda.Function) bool {
	for _, r := range stack.Resources() {
		if api, ok := r.(*apigateway.LambdaRestApi); ok && api.Handler() == fn {
			return true
		}
	}
	return false
}

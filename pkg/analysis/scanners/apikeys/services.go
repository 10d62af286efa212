package apikeys

import "regexp"

// serviceRule describes one third-party service: how its credentials show up
// in env files, and how direct client-side usage shows up in source code.
type serviceRule struct {
	name        string
	envKeys     []*regexp.Regexp
	codeRefs    []*regexp.Regexp
	remediation string
}

var serviceRules = []serviceRule{
	{
		name: "OpenAI",
		envKeys: []*regexp.Regexp{
			regexp.MustCompile(`(?i)OPENAI_API_KEY`),
		},
		codeRefs: []*regexp.Regexp{
			regexp.MustCompile(`api\.openai\.com`),
			regexp.MustCompile(`new OpenAI\s*\(`),
			regexp.MustCompile(`from\s+['"]openai['"]`),
		},
		remediation: "Call OpenAI from a server route and keep the key out of the browser bundle.",
	},
	{
		name: "Anthropic",
		envKeys: []*regexp.Regexp{
			regexp.MustCompile(`(?i)ANTHROPIC_API_KEY`),
		},
		codeRefs: []*regexp.Regexp{
			regexp.MustCompile(`api\.anthropic\.com`),
			regexp.MustCompile(`new Anthropic\s*\(`),
			regexp.MustCompile(`@anthropic-ai/sdk`),
		},
		remediation: "Proxy Anthropic requests through a server route.",
	},
	{
		name: "Stripe",
		envKeys: []*regexp.Regexp{
			regexp.MustCompile(`(?i)STRIPE_(SECRET|RESTRICTED)_KEY`),
		},
		codeRefs: []*regexp.Regexp{
			regexp.MustCompile(`sk_live_[0-9a-zA-Z]{8,}`),
			// The server SDK, not @stripe/stripe-js which is built for browsers.
			regexp.MustCompile(`from\s+['"]stripe['"]`),
			regexp.MustCompile(`require\(['"]stripe['"]\)`),
		},
		remediation: "Secret Stripe keys belong in server code only. Use @stripe/stripe-js with a publishable key in the client.",
	},
	{
		name: "Supabase service role",
		envKeys: []*regexp.Regexp{
			regexp.MustCompile(`(?i)SERVICE_ROLE`),
		},
		codeRefs: []*regexp.Regexp{
			regexp.MustCompile(`SUPABASE_SERVICE_ROLE_KEY`),
		},
		remediation: "The service-role key bypasses row level security. Never reference it from client-reachable code.",
	},
	{
		name: "Algolia admin",
		envKeys: []*regexp.Regexp{
			regexp.MustCompile(`(?i)ALGOLIA.*(ADMIN|WRITE|SECRET)`),
		},
		codeRefs: []*regexp.Regexp{
			regexp.MustCompile(`algoliasearch\s*\(`),
		},
		remediation: "Use a search-only key in the client, or proxy search through a server route.",
	},
	{
		name: "SendGrid",
		envKeys: []*regexp.Regexp{
			regexp.MustCompile(`(?i)SENDGRID_API_KEY`),
		},
		codeRefs: []*regexp.Regexp{
			regexp.MustCompile(`@sendgrid/mail`),
			regexp.MustCompile(`api\.sendgrid\.com`),
		},
		remediation: "Send mail from a server route; the SendGrid key grants full account access.",
	},
}

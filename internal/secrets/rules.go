package secrets

// DefaultRules returns the detection rules applied to conversation
// content. The set is tuned for text people paste into AI chats:
// provider tokens with self-identifying prefixes, private key blocks,
// auth headers, connection URLs, and env-style credential assignments.
// It makes no attempt at entropy analysis or repo-history scanning.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "aws-access-key",
			Severity: "high",
			Pattern:  `\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`,
			Keywords: []string{"akia", "asia"},
		},
		{
			ID:       "github-token",
			Severity: "high",
			Pattern:  `\b(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{36,}|\bgithub_pat_[A-Za-z0-9_]{22,}`,
			Keywords: []string{"ghp_", "gho_", "ghu_", "ghs_", "ghr_", "github_pat_"},
		},
		{
			ID:       "gitlab-token",
			Severity: "high",
			Pattern:  `\bglpat-[A-Za-z0-9_\-]{20,}`,
			Keywords: []string{"glpat-"},
		},
		{
			ID:       "slack-token",
			Severity: "high",
			Pattern:  `\bxox[abprs]-[A-Za-z0-9\-]{10,}`,
			Keywords: []string{"xox"},
		},
		{
			ID:       "stripe-key",
			Severity: "high",
			Pattern:  `\b(?:sk|pk|rk)_(?:live|test)_[A-Za-z0-9]{24,}`,
			Keywords: []string{"_live_", "_test_"},
		},
		{
			ID:       "anthropic-api-key",
			Severity: "high",
			Pattern:  `\bsk-ant-[A-Za-z0-9_\-]{24,}`,
			Keywords: []string{"sk-ant-"},
		},
		{
			ID:       "openai-api-key",
			Severity: "high",
			Pattern:  `\bsk-proj-[A-Za-z0-9_\-]{32,}|\bsk-[A-Za-z0-9]{32,}`,
			Keywords: []string{"sk-"},
		},
		{
			ID:       "npm-token",
			Severity: "high",
			Pattern:  `\bnpm_[A-Za-z0-9]{36}`,
			Keywords: []string{"npm_"},
		},
		{
			// Whole PEM block when the END marker survived the paste,
			// the BEGIN marker alone when it did not.
			ID:       "private-key",
			Severity: "high",
			Pattern:  `(?s)-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----(?:.*?-----END (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----)?`,
			Keywords: []string{"private key"},
		},
		{
			ID:       "url-credentials",
			Severity: "high",
			Pattern:  `(?i)\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|rediss?|amqps?)://[^:/@\s]+:[^@\s]+@[^\s]+`,
			Keywords: []string{"://"},
		},
		{
			// Shell exports and .env lines: uppercase names ending in a
			// credential word, with an unquoted or quoted value.
			ID:       "env-credential",
			Severity: "high",
			Pattern:  `\b(?:[A-Z][A-Z0-9_]*_)?(?:TOKEN|SECRET|PASSWORD|PASSWD|KEY|CREDENTIALS?)\s*[:=]\s*['"]?[^\s'"]{8,}`,
			Keywords: []string{"token", "secret", "password", "passwd", "key", "credential"},
		},
		{
			// Code-style assignments. The quotes around the value keep
			// prose like "token: expired" out.
			ID:       "assignment-secret",
			Severity: "medium",
			Pattern:  `(?i)\b(?:secret|password|passwd|token|api[_-]?key|auth[_-]?token)\s*[:=]\s*['"][^'"]{8,}['"]`,
			Keywords: []string{"secret", "password", "passwd", "token", "key"},
		},
		{
			ID:       "bearer-token",
			Severity: "medium",
			Pattern:  `(?i)\bbearer\s+[A-Za-z0-9_\-.=+/]{20,}`,
			Keywords: []string{"bearer"},
		},
		{
			ID:       "jwt",
			Severity: "medium",
			Pattern:  `\beyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]{8,}`,
			Keywords: []string{"eyj"},
		},
	}
}

package mcpserver

// PlanFormatContract describes the plan payload that LLM consumers should
// follow when creating plans.
const PlanFormatContract = `# Heirloom Plan Format Contract

A plan names an owner, the beneficiaries that inherit when the owner stops
checking in, and the assets the ledger contract distributes.

## Structure

` + "```" + `json
{
  "owner_address": "0x…",              // REQUIRED – 20-byte hex, not the zero address
  "owner_email": "owner@example.com",  // OPTIONAL – used by beneficiaries to find the plan
  "check_in_interval_seconds": 2592000, // REQUIRED – > 0
  "inheritors": [                      // REQUIRED – at least one
    {"address": "0x…", "share_percentage": 60, "name": "Ada"},
    {"secret_question": "First pet?", "secret_answer": "rex",
     "share_percentage": 40, "email": "heir@example.com"}
  ],
  "tokens": [
    {"type": "NATIVE"},
    {"type": "ERC20", "address": "0x…"}
  ]
}
` + "```" + `

## Rules

1. **Shares** are whole percentages from 1 to 100; their sum must not exceed 100.
2. **Each inheritor** gives exactly one of ` + "`" + `address` + "`" + ` or
   ` + "`" + `secret_question` + "`" + ` + ` + "`" + `secret_answer` + "`" + `. Giving both is rejected.
3. **Secret answers** are matched case-insensitively after trimming. They are
   stored only as a hash and never returned.
4. **Addresses** are stored lower-case. An inheritor address must differ from
   the owner and from every other inheritor.
5. **Tokens** are ` + "`" + `ERC20` + "`" + `, ` + "`" + `HTS` + "`" + ` or ` + "`" + `NATIVE` + "`" + `. The native entry
   uses the zero address and appears at most once; duplicate token addresses are merged.
6. **Check-ins** reset the deadline. Once a claim is initiated the plan is frozen.
`

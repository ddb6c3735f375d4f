package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// inheritanceABI is the subset of the inheritance contract the gateway calls.
const inheritanceABI = `[
  {"type":"function","name":"getClaimStatus","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"claimable","type":"bool"},{"name":"nextDeadline","type":"uint256"}]},
  {"type":"function","name":"claimInheritance","stateMutability":"nonpayable",
   "inputs":[{"name":"owner","type":"address"}],"outputs":[]},
  {"type":"function","name":"resolveInheritorWithSecret","stateMutability":"nonpayable",
   "inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"},
             {"name":"beneficiary","type":"address"},{"name":"answer","type":"string"}],"outputs":[]},
  {"type":"error","name":"PlanAlreadyClaimed","inputs":[]},
  {"type":"error","name":"ClaimNotAvailable","inputs":[]},
  {"type":"error","name":"InvalidConfiguration","inputs":[]},
  {"type":"error","name":"NothingToDistribute","inputs":[]},
  {"type":"error","name":"Unauthorized","inputs":[]},
  {"type":"error","name":"InheritorAlreadyResolved","inputs":[]},
  {"type":"error","name":"InvalidSecret","inputs":[]},
  {"type":"error","name":"InsufficientAllowance",
   "inputs":[{"name":"token","type":"address"},{"name":"have","type":"uint256"},{"name":"need","type":"uint256"}]}
]`

const (
	methodGetClaimStatus    = "getClaimStatus"
	methodClaimInheritance  = "claimInheritance"
	methodResolveWithSecret = "resolveInheritorWithSecret"
)

// ContractABI parses the inheritance contract ABI.
func ContractABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(inheritanceABI))
}

package callgrind

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRoundTrip_NoProxies covers testable property 1: invocation counts,
// self costs, and inclusive costs for every function match direct
// summation over the trace, with no proxy configuration involved.
func TestRoundTrip_NoProxies(t *testing.T) {
	trace := "fl=a.php\n" +
		"fn=alpha\n" +
		"1 10\n" +
		"cfn=beta\n" +
		"calls=1 0\n" +
		"2 5\n" +
		"fl=a.php\n" +
		"fn=alpha\n" +
		"1 20\n" +
		"cfn=beta\n" +
		"calls=1 0\n" +
		"2 7\n" +
		"fl=b.php\n" +
		"fn=beta\n" +
		"3 1\n"

	r := runTrace(t, nil, trace)

	var alpha, beta uint32
	for i := uint32(0); i < r.FunctionCount(); i++ {
		info, err := r.FunctionInfo(i)
		require.NoError(t, err)
		if info.FunctionName == "alpha" {
			alpha = i
		} else {
			beta = i
		}
	}

	alphaInfo, err := r.FunctionInfo(alpha)
	require.NoError(t, err)
	require.EqualValues(t, 2, alphaInfo.InvocationCount)
	require.EqualValues(t, 30, alphaInfo.SummedSelfCostRaw) // 10 + 20
	require.Equal(t, "42", alphaInfo.SummedInclusiveCost)   // 30 self + 12 edges

	betaInfo, err := r.FunctionInfo(beta)
	require.NoError(t, err)
	require.EqualValues(t, 1, betaInfo.CalledFromInfoCount) // one edge key: (alpha, line 2)
	cf, err := r.CalledFromInfo(beta, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, cf.CallCount)
	require.Equal(t, "12", cf.SummedCallCost)
}

// TestEdgeDuality covers testable property 2: every caller/callee edge is
// a dual view held by both sides with identical fields.
func TestEdgeDuality(t *testing.T) {
	trace := "fl=a.php\n" +
		"fn=caller\n" +
		"1 1\n" +
		"cfn=callee\n" +
		"calls=1 0\n" +
		"9 42\n" +
		"fl=b.php\n" +
		"fn=callee\n" +
		"3 1\n"

	r := runTrace(t, nil, trace)

	var caller, callee uint32
	for i := uint32(0); i < r.FunctionCount(); i++ {
		info, err := r.FunctionInfo(i)
		require.NoError(t, err)
		if info.FunctionName == "caller" {
			caller = i
		} else {
			callee = i
		}
	}

	sc, err := r.SubCallInfo(caller, 0)
	require.NoError(t, err)
	cf, err := r.CalledFromInfo(callee, 0)
	require.NoError(t, err)

	require.Equal(t, callee, sc.FunctionNr)
	require.Equal(t, caller, cf.FunctionNr)
	require.Equal(t, sc.Line, cf.Line)
	require.Equal(t, sc.CallCount, cf.CallCount)
	require.Equal(t, sc.SummedCallCost, cf.SummedCallCost)
}

// TestOffsetTableIntegrity covers testable property 3: offsets are
// strictly increasing and every offset lands inside the record region.
func TestOffsetTableIntegrity(t *testing.T) {
	trace := "fl=a.php\nfn=one\n1 1\n" +
		"fl=b.php\nfn=two\n2 2\n" +
		"fl=c.php\nfn=three\n3 3\n"

	dir := t.TempDir()
	in := filepath.Join(dir, "t.callgrind")
	out := filepath.Join(dir, "t.idx")
	require.NoError(t, os.WriteFile(in, []byte(trace), 0o644))
	require.NoError(t, NewPreprocessor(nil).Run(in, out))

	r, err := Open(out, FormatUsec)
	require.NoError(t, err)
	defer r.Close()

	n := int(r.FunctionCount())
	require.Equal(t, 3, n)

	recordRegionStart := uint32(12 + 4*n)
	var prev uint32
	for i := 0; i < n; i++ {
		off := r.functionOffset[i]
		require.GreaterOrEqual(t, off, recordRegionStart)
		require.Less(t, off, r.headersPos)
		if i > 0 {
			require.Greater(t, off, prev)
		}
		prev = off

		info1, err := r.FunctionInfo(uint32(i))
		require.NoError(t, err)
		info2, err := r.FunctionInfo(uint32(i))
		require.NoError(t, err)
		require.Equal(t, info1, info2)
	}
}

// TestMalformedProxyQueue_EmptyDequeue covers the resolved open question:
// a proxy invoked with no pending redirection is MalformedInput, not
// undefined behavior.
func TestMalformedProxyQueue_EmptyDequeue(t *testing.T) {
	trace := "fl=main.php\n" +
		"fn={main}\n" +
		"summary: 1\n" +
		"0 0\n" +
		"1 0\n" +
		"cfn=call_user_func\n" +
		"calls=1 0\n" +
		"1 5\n"

	dir := t.TempDir()
	in := filepath.Join(dir, "t.callgrind")
	out := filepath.Join(dir, "t.idx")
	require.NoError(t, os.WriteFile(in, []byte(trace), 0o644))

	proxies := map[string]struct{}{"call_user_func": {}}
	err := NewPreprocessor(proxies).Run(in, out)
	require.Error(t, err)
}

// TestMalformedInput_FlWithoutFn covers §7 error kind MalformedInput
// when fl= is not followed by fn=.
func TestMalformedInput_FlWithoutFn(t *testing.T) {
	trace := "fl=main.php\nnot-fn-line\n"
	dir := t.TempDir()
	in := filepath.Join(dir, "t.callgrind")
	out := filepath.Join(dir, "t.idx")
	require.NoError(t, os.WriteFile(in, []byte(trace), 0o644))

	err := NewPreprocessor(nil).Run(in, out)
	require.Error(t, err)

	_, statErr := os.Stat(out)
	require.True(t, os.IsNotExist(statErr), "a failed run must not leave a partial index file")
}
